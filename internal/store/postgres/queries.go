package postgres

const (
	_accountColumns  = "id, cash_balance, version, created_at, updated_at"
	_positionColumns = "account_id, symbol, quantity, average_cost, updated_at"
	_historyColumns  = "id, account_id, ts, cash_balance, investments_value, total_value, failed_symbols"
	_favoriteColumns = "account_id, symbol, name, created_at"
)

const (
	_insertAccount   = "INSERT INTO accounts (id, cash_balance) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING"
	_queryAccount    = "SELECT " + _accountColumns + " FROM accounts WHERE id = $1"
	_lockAccount     = _queryAccount + " FOR UPDATE"
	_queryAccountIDs = "SELECT id FROM accounts ORDER BY id"
	_updateAccount   = `UPDATE accounts
							SET cash_balance = $1,
								version = version + 1,
								updated_at = now()
							WHERE id = $2 AND version = $3`
)

const (
	_queryPositions = "SELECT " + _positionColumns + " FROM positions WHERE account_id = $1 ORDER BY symbol"
	_queryPosition  = "SELECT " + _positionColumns + " FROM positions WHERE account_id = $1 AND symbol = $2"
	_upsertPosition = `INSERT INTO positions (
								account_id,
								symbol,
								quantity,
								average_cost,
								updated_at
							) VALUES ($1,$2,$3,$4,now())
							ON CONFLICT (account_id, symbol)
							DO UPDATE SET
								quantity = EXCLUDED.quantity,
								average_cost = EXCLUDED.average_cost,
								updated_at = EXCLUDED.updated_at;`
	_deletePosition = "DELETE FROM positions WHERE account_id = $1 AND symbol = $2"
)

const (
	_insertHistory = `INSERT INTO value_history (
								id,
								account_id,
								ts,
								cash_balance,
								investments_value,
								total_value,
								failed_symbols
							) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_queryHistory = "SELECT " + _historyColumns + " FROM value_history WHERE account_id = $1 AND ts >= $2 ORDER BY ts, id"
)

const (
	_insertFavorite = `INSERT INTO favorites (account_id, symbol, name) VALUES ($1, $2, $3)
							ON CONFLICT (account_id, symbol) DO NOTHING`
	_queryFavorite  = "SELECT " + _favoriteColumns + " FROM favorites WHERE account_id = $1 AND symbol = $2"
	_queryFavorites = "SELECT " + _favoriteColumns + " FROM favorites WHERE account_id = $1 ORDER BY created_at DESC, symbol"
	_deleteFavorite = "DELETE FROM favorites WHERE account_id = $1 AND symbol = $2"
)
