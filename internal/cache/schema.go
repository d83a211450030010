package cache

// Schema contains SQL schema definitions for the mailbox view
const Schema = `
-- Messages of the most recent refresh, in display order
CREATE TABLE IF NOT EXISTS messages (
    position INTEGER PRIMARY KEY,
    server_id INTEGER NOT NULL,
    subject TEXT NOT NULL,
    from_addr TEXT NOT NULL,
    to_addr TEXT NOT NULL,
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_server_id ON messages(server_id);
`
