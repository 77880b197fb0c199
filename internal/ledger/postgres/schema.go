package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bridge_records (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	from_chain TEXT NOT NULL,
	to_chain TEXT NOT NULL,
	amount_eth DOUBLE PRECISION NOT NULL,
	mode TEXT NOT NULL,

	gas_price_gwei DOUBLE PRECISION NOT NULL DEFAULT 0,
	gas_fee_eth DOUBLE PRECISION NOT NULL DEFAULT 0,
	bridge_fee_eth DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_fee_eth DOUBLE PRECISION NOT NULL DEFAULT 0,
	eth_price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_fee_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	message_fee_wei NUMERIC(78, 0),

	success BOOLEAN NOT NULL,
	tx_hash TEXT,
	error TEXT,
	failure_reason TEXT,

	recorded_at TIMESTAMPTZ NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT amount_nonneg CHECK (amount_eth >= 0),
	CONSTRAINT tx_hash_len CHECK (tx_hash IS NULL OR length(tx_hash) = 66)
);

CREATE INDEX IF NOT EXISTS bridge_records_wallet_idx ON bridge_records (wallet_address, recorded_at DESC);
`
