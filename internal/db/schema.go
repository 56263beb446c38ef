package db

// schemaTemplate contains the database schema initialization SQL. The
// single %d placeholder is the embedding dimension of the fragment HNSW
// index.
const schemaTemplate = `
    -- ==========================================================================
    -- ASSISTANT TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS assistant SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON assistant TYPE string;
    DEFINE FIELD IF NOT EXISTS model ON assistant TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON assistant TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS assistant_name ON assistant FIELDS name UNIQUE;

    -- ==========================================================================
    -- REPO TABLE (ingestion jobs)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS repo SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS assistant_id ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS thread_id ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS error ON repo TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS file_count ON repo TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS files_processed ON repo TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS fragment_count ON repo TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS started_at ON repo TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON repo TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS repo_thread ON repo FIELDS thread_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS repo_owner_name ON repo FIELDS owner, name;

    -- ==========================================================================
    -- THREAD TABLE (conversation threads; run state of the latest turn)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS thread SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS assistant_id ON thread TYPE string;
    DEFINE FIELD IF NOT EXISTS run_status ON thread TYPE string;
    DEFINE FIELD IF NOT EXISTS reply ON thread TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON thread TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON thread TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON thread TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- MESSAGE TABLE (conversation history)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS thread_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_thread ON message FIELDS thread_id;

    -- ==========================================================================
    -- FRAGMENT TABLE (retrieval units)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS fragment SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS thread_id ON fragment TYPE string;
    DEFINE FIELD IF NOT EXISTS path ON fragment TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON fragment TYPE int;
    DEFINE FIELD IF NOT EXISTS language ON fragment TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON fragment TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON fragment TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON fragment TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS fragment_thread ON fragment FIELDS thread_id;
    DEFINE INDEX IF NOT EXISTS fragment_identity ON fragment FIELDS thread_id, path, position UNIQUE;
    DEFINE INDEX IF NOT EXISTS fragment_embedding ON fragment FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`
