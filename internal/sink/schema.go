package sink

// Column names follow the profile table consumed by the downstream
// classifier and dashboard, hence the '#' count prefixes.
const createProfilesSQL = `
	CREATE TABLE IF NOT EXISTS customer_profiles (
		person TEXT PRIMARY KEY,
		"#transaction_bogo" INTEGER NOT NULL,
		transaction_bogo_value REAL NOT NULL,
		"#transaction_discount" INTEGER NOT NULL,
		transaction_discount_value REAL NOT NULL,
		"#transaction_informational" INTEGER NOT NULL,
		transaction_informational_value REAL NOT NULL,
		"#transaction_no_offer" INTEGER NOT NULL,
		transaction_no_offer_value REAL NOT NULL,
		completed_offers INTEGER NOT NULL,
		"#bogos" INTEGER NOT NULL,
		"#discounts" INTEGER NOT NULL,
		bogos_rewards REAL NOT NULL,
		discounts_rewards REAL NOT NULL,
		"#random_rewards" INTEGER NOT NULL,
		random_rewards REAL NOT NULL,
		bogos_offered INTEGER NOT NULL,
		discounts_offered INTEGER NOT NULL,
		informationals_offered INTEGER NOT NULL,
		gender TEXT NOT NULL,
		age INTEGER NOT NULL,
		income REAL NOT NULL,
		customer_since INTEGER NOT NULL,
		best_offer_value TEXT NOT NULL,
		best_offer_count TEXT NOT NULL
	) WITHOUT ROWID
`

const insertProfileSQL = `
	INSERT INTO customer_profiles (
		person,
		"#transaction_bogo", transaction_bogo_value,
		"#transaction_discount", transaction_discount_value,
		"#transaction_informational", transaction_informational_value,
		"#transaction_no_offer", transaction_no_offer_value,
		completed_offers,
		"#bogos", "#discounts", bogos_rewards, discounts_rewards,
		"#random_rewards", random_rewards,
		bogos_offered, discounts_offered, informationals_offered,
		gender, age, income, customer_since,
		best_offer_value, best_offer_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectProfilesSQL = `
	SELECT
		person,
		"#transaction_bogo", transaction_bogo_value,
		"#transaction_discount", transaction_discount_value,
		"#transaction_informational", transaction_informational_value,
		"#transaction_no_offer", transaction_no_offer_value,
		completed_offers,
		"#bogos", "#discounts", bogos_rewards, discounts_rewards,
		"#random_rewards", random_rewards,
		bogos_offered, discounts_offered, informationals_offered,
		gender, age, income, customer_since,
		best_offer_value, best_offer_count
	FROM customer_profiles
	ORDER BY person
`

const createRunsSQL = `
	CREATE TABLE IF NOT EXISTS profile_runs (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		customers INTEGER NOT NULL,
		profiles INTEGER NOT NULL,
		unjoined INTEGER NOT NULL,
		quarantined INTEGER NOT NULL,
		events INTEGER NOT NULL
	) WITHOUT ROWID
`

const createQuarantineSQL = `
	CREATE TABLE IF NOT EXISTS quarantined_customers (
		run_id TEXT NOT NULL,
		person TEXT NOT NULL,
		code TEXT NOT NULL,
		message TEXT NOT NULL,
		event_count INTEGER NOT NULL,
		events BLOB NOT NULL,
		PRIMARY KEY (run_id, person)
	) WITHOUT ROWID
`
