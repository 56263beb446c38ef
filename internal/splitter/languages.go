package splitter

import (
	"path/filepath"
	"strings"
)

// Language tags a file's detected source language. The empty value means
// the file type was not recognized and the token splitter applies.
type Language string

const (
	LangC        Language = "c"
	LangCPP      Language = "cpp"
	LangCSharp   Language = "csharp"
	LangGo       Language = "go"
	LangHTML     Language = "html"
	LangJS       Language = "js"
	LangKotlin   Language = "kotlin"
	LangLaTeX    Language = "latex"
	LangPerl     Language = "perl"
	LangPHP      Language = "php"
	LangProto    Language = "proto"
	LangPython   Language = "python"
	LangRST      Language = "rst"
	LangRuby     Language = "ruby"
	LangRust     Language = "rust"
	LangScala    Language = "scala"
	LangSwift    Language = "swift"
	LangTS       Language = "ts"
	LangPlain    Language = ""
	LangNotebook Language = "notebook"
)

// extLanguages maps file extensions to chunking languages. Notebook files
// are tagged separately: cell sources are extracted first and then split
// with the Python strategy.
var extLanguages = map[string]Language{
	".c":     LangC,
	".cpp":   LangCPP,
	".cc":    LangCPP,
	".cs":    LangCSharp,
	".go":    LangGo,
	".html":  LangHTML,
	".ipynb": LangNotebook,
	".js":    LangJS,
	".kt":    LangKotlin,
	".pl":    LangPerl,
	".php":   LangPHP,
	".proto": LangProto,
	".py":    LangPython,
	".rb":    LangRuby,
	".rs":    LangRust,
	".rst":   LangRST,
	".scala": LangScala,
	".swift": LangSwift,
	".tex":   LangLaTeX,
	".ts":    LangTS,
}

// Detect returns the chunking language for a file path. The boolean is
// false for unrecognized extensions.
func Detect(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extLanguages[ext]
	return lang, ok
}

// separators returns the ordered separator preferences for a language,
// coarse declaration boundaries first, single characters last. The final
// empty separator means "split at arbitrary character boundaries".
func separators(lang Language) []string {
	switch lang {
	case LangC, LangCPP:
		return []string{"\nclass ", "\nvoid ", "\nint ", "\nfloat ", "\ndouble ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ", "\n\n", "\n", " ", ""}
	case LangCSharp:
		return []string{"\ninterface ", "\nenum ", "\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\nstatic ", "\nif ", "\nfor ", "\nforeach ", "\nwhile ", "\nswitch ", "\ncase ", "\n\n", "\n", " ", ""}
	case LangGo:
		return []string{"\nfunc ", "\nvar ", "\nconst ", "\ntype ", "\nif ", "\nfor ", "\nswitch ", "\ncase ", "\n\n", "\n", " ", ""}
	case LangHTML:
		return []string{"<body", "<div", "<p", "<br", "<li", "<h1", "<h2", "<h3", "<h4", "<h5", "<h6", "<span", "<table", "<tr", "<td", "<ul", "<ol", "<header", "<footer", "<nav", "<head", "<style", "<script", "<meta", "<title", ""}
	case LangJS, LangTS:
		return []string{"\nfunction ", "\nconst ", "\nlet ", "\nvar ", "\nclass ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ", "\ndefault ", "\n\n", "\n", " ", ""}
	case LangKotlin:
		return []string{"\nclass ", "\nfun ", "\nval ", "\nvar ", "\nif ", "\nfor ", "\nwhile ", "\nwhen ", "\nelse ", "\n\n", "\n", " ", ""}
	case LangLaTeX:
		return []string{"\n\\chapter{", "\n\\section{", "\n\\subsection{", "\n\\subsubsection{", "\n\\begin{", "\n\n", "\n", " ", ""}
	case LangPerl:
		return []string{"\nsub ", "\nif ", "\nforeach ", "\nwhile ", "\nunless ", "\n\n", "\n", " ", ""}
	case LangPHP:
		return []string{"\nfunction ", "\nclass ", "\nif ", "\nforeach ", "\nwhile ", "\ndo ", "\nswitch ", "\ncase ", "\n\n", "\n", " ", ""}
	case LangProto:
		return []string{"\nmessage ", "\nservice ", "\nenum ", "\noption ", "\nimport ", "\nsyntax ", "\n\n", "\n", " ", ""}
	case LangPython, LangNotebook:
		return []string{"\nclass ", "\ndef ", "\n\tdef ", "\n\n", "\n", " ", ""}
	case LangRST:
		return []string{"\n\n.. ", "\n\n", "\n", " ", ""}
	case LangRuby:
		return []string{"\ndef ", "\nclass ", "\nif ", "\nunless ", "\nwhile ", "\nfor ", "\nbegin ", "\nrescue ", "\n\n", "\n", " ", ""}
	case LangRust:
		return []string{"\nfn ", "\nconst ", "\nlet ", "\nif ", "\nwhile ", "\nfor ", "\nloop ", "\nmatch ", "\n\n", "\n", " ", ""}
	case LangScala:
		return []string{"\nclass ", "\nobject ", "\ndef ", "\nval ", "\nvar ", "\nif ", "\nfor ", "\nwhile ", "\nmatch ", "\ncase ", "\n\n", "\n", " ", ""}
	case LangSwift:
		return []string{"\nfunc ", "\nclass ", "\nstruct ", "\nenum ", "\nif ", "\nfor ", "\nwhile ", "\ndo ", "\nswitch ", "\ncase ", "\n\n", "\n", " ", ""}
	default:
		return []string{"\n\n", "\n", " ", ""}
	}
}
