package sqlite

// Timestamps are stored as unix nanoseconds so ordering is numeric.
// seq columns preserve insertion order, which topic clustering depends on.
const schema = `
-- Registered users and their remote quota state
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL DEFAULT '',
    quota_used INTEGER NOT NULL DEFAULT 0 CHECK(quota_used >= 0),
    last_reset_date TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL DEFAULT 0
);

-- Answered questions (append-only)
CREATE TABLE IF NOT EXISTS answers (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    embedding TEXT NOT NULL DEFAULT '',
    ip TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answers_created_at ON answers(created_at);
CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question);

-- Community topics produced by clustering runs
CREATE TABLE IF NOT EXISTS topics (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    question_count INTEGER NOT NULL CHECK(question_count > 0),
    samples TEXT NOT NULL DEFAULT '[]',
    popularity INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_topics_created_at ON topics(created_at);
CREATE INDEX IF NOT EXISTS idx_topics_popularity ON topics(popularity);

-- Ratings left against answers
CREATE TABLE IF NOT EXISTS feedback (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    question_id TEXT NOT NULL DEFAULT '',
    question TEXT NOT NULL DEFAULT '',
    rating TEXT NOT NULL CHECK(rating IN ('helpful', 'not_helpful')),
    note TEXT NOT NULL DEFAULT '',
    ip TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_question_id ON feedback(question_id);
CREATE INDEX IF NOT EXISTS idx_feedback_question ON feedback(question);

-- Periodic learning digests
CREATE TABLE IF NOT EXISTS learning_summaries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    summary TEXT NOT NULL,
    feedback_count INTEGER NOT NULL DEFAULT 0,
    topic_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
`
