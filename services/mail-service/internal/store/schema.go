package store

// Columns selected for a full message row, in models.Message order.
const messageColumns = `id, external_id, thread_id, sender, recipient, subject, snippet,
	body_text, body_html, labels, received_at, is_read, raw_payload, created_at, updated_at`

const connectionColumns = `user_id, state, external_account_id, trigger_id, trigger_enabled,
	connected_at, created_at, updated_at`

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS emails (
	    id UUID PRIMARY KEY,
	    external_id VARCHAR(255) NOT NULL UNIQUE,
	    thread_id VARCHAR(255) NOT NULL DEFAULT '',
	    sender TEXT NOT NULL DEFAULT '',
	    recipient TEXT NOT NULL DEFAULT '',
	    subject TEXT NOT NULL DEFAULT '',
	    snippet TEXT NOT NULL DEFAULT '',
	    body_text TEXT,
	    body_html TEXT,
	    labels JSONB NOT NULL DEFAULT '[]'::jsonb,
	    received_at TIMESTAMP WITH TIME ZONE NOT NULL,
	    is_read BOOLEAN NOT NULL DEFAULT FALSE,
	    raw_payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_unread ON emails(is_read) WHERE is_read = FALSE`,
	`CREATE TABLE IF NOT EXISTS connections (
	    user_id VARCHAR(255) PRIMARY KEY,
	    state VARCHAR(32) NOT NULL DEFAULT 'not_connected'
	        CHECK (state IN ('not_connected', 'pending_authorization', 'active')),
	    external_account_id VARCHAR(255) NOT NULL DEFAULT '',
	    trigger_id VARCHAR(255) NOT NULL DEFAULT '',
	    trigger_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	    connected_at TIMESTAMP WITH TIME ZONE,
	    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS emails (
	    id TEXT PRIMARY KEY,
	    external_id TEXT NOT NULL UNIQUE,
	    thread_id TEXT NOT NULL DEFAULT '',
	    sender TEXT NOT NULL DEFAULT '',
	    recipient TEXT NOT NULL DEFAULT '',
	    subject TEXT NOT NULL DEFAULT '',
	    snippet TEXT NOT NULL DEFAULT '',
	    body_text TEXT,
	    body_html TEXT,
	    labels TEXT NOT NULL DEFAULT '[]',
	    received_at DATETIME NOT NULL,
	    is_read BOOLEAN NOT NULL DEFAULT 0,
	    raw_payload TEXT NOT NULL DEFAULT '{}',
	    created_at DATETIME NOT NULL,
	    updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS connections (
	    user_id TEXT PRIMARY KEY,
	    state TEXT NOT NULL DEFAULT 'not_connected'
	        CHECK (state IN ('not_connected', 'pending_authorization', 'active')),
	    external_account_id TEXT NOT NULL DEFAULT '',
	    trigger_id TEXT NOT NULL DEFAULT '',
	    trigger_enabled BOOLEAN NOT NULL DEFAULT 0,
	    connected_at DATETIME,
	    created_at DATETIME NOT NULL,
	    updated_at DATETIME NOT NULL
	)`,
}
