package config

// EnvPrefix is empty because every variable carries the full SOKOPLACE_ name
// in its envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "SOKOPLACE_DB_DSN"
	EnvDBHost = "SOKOPLACE_DB_HOST"
	EnvDBUser = "SOKOPLACE_DB_USER"
	EnvDBName = "SOKOPLACE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
