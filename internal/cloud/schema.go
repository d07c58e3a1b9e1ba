package cloud

// ChangesChannel is the LISTEN/NOTIFY channel; the payload is the user id
// whose data changed.
const ChangesChannel = "carteira_changes"

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    uid           TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL,
    password_hash BYTEA NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
    user_id            TEXT PRIMARY KEY,
    email              TEXT NOT NULL,
    name               TEXT NOT NULL,
    biometrics_enabled BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS transactions (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    amount          NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
    description     TEXT NOT NULL,
    category        TEXT NOT NULL,
    type            TEXT NOT NULL CHECK (type IN ('income', 'expense')),
    date            TIMESTAMPTZ NOT NULL,
    is_subscription BOOLEAN NOT NULL DEFAULT FALSE,
    subscription_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS transactions_user_id_idx ON transactions (user_id, date DESC);

CREATE TABLE IF NOT EXISTS goals (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    position       INTEGER NOT NULL,
    title          TEXT NOT NULL,
    target_amount  NUMERIC(14, 2) NOT NULL,
    current_amount NUMERIC(14, 2) NOT NULL DEFAULT 0,
    icon           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS goals_user_id_idx ON goals (user_id);

CREATE TABLE IF NOT EXISTS budgets (
    user_id      TEXT NOT NULL,
    category     TEXT NOT NULL,
    position     INTEGER NOT NULL,
    limit_amount NUMERIC(14, 2) NOT NULL,
    PRIMARY KEY (user_id, category)
);
`
