package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		username VARCHAR(64) NOT NULL,
		name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_username ON users (username);`,
	`CREATE TABLE IF NOT EXISTS market_items (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL REFERENCES users(id),
		crop TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		price BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_market_items_user_id ON market_items (user_id);`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		contract_number VARCHAR(64) NOT NULL,
		buyer_id UUID NOT NULL,
		farmer_id UUID NOT NULL,
		market_item_id UUID,
		crop TEXT NOT NULL,
		price NUMERIC(18,2) NOT NULL CHECK (price > 0),
		terms TEXT NOT NULL,
		agreement_date TIMESTAMPTZ NOT NULL,
		delivery_date TIMESTAMPTZ NOT NULL,
		buyer_signature TEXT NOT NULL,
		farmer_signature TEXT,
		payment_id TEXT,
		payment_deadline TIMESTAMPTZ,
		status VARCHAR(32) NOT NULL DEFAULT 'PENDING_FARMER',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_contracts_status') THEN
			ALTER TABLE contracts ADD CONSTRAINT chk_contracts_status
				CHECK (status IN ('PENDING_FARMER', 'AWAITING_PAYMENT', 'COMPLETED', 'DISSOLVED', 'DISMISSED'));
		END IF;
	END
	$$;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_contract_number ON contracts (contract_number);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_buyer_id ON contracts (buyer_id);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_farmer_id ON contracts (farmer_id);`,
	`CREATE INDEX IF NOT EXISTS idx_contract_status_created ON contracts (status, created_at);`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL,
		message TEXT NOT NULL,
		contract_id UUID REFERENCES contracts(id),
		role VARCHAR(16) NOT NULL CHECK (role IN ('farmer', 'buyer')),
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_notification_user_created ON notifications (user_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_contract_id ON notifications (contract_id) WHERE contract_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		chat_id VARCHAR(64) NOT NULL,
		sender_id UUID NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages (chat_id);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
