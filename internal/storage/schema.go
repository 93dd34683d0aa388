package storage

const schema = `
-- The 'cards' table stores each flashcard and its mastery state.
-- 'position' keeps the collection order that due selection walks.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    question TEXT NOT NULL UNIQUE,
    answer TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT '',
    image TEXT NOT NULL DEFAULT '',
    level INTEGER NOT NULL DEFAULT 0,
    next_review TEXT -- 'YYYY-MM-DD HH:MM:SS' local time, NULL when never scheduled
);

CREATE INDEX IF NOT EXISTS idx_cards_position ON cards(position);

-- The 'stats' table holds the single study stats row.
CREATE TABLE IF NOT EXISTS stats (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    streak INTEGER NOT NULL DEFAULT 0,
    last_study_date TEXT
);

-- The 'review_logs' table records every answer.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    reviewed_at DATETIME NOT NULL,
    correct INTEGER NOT NULL,
    level INTEGER NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);
`
