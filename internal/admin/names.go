package admin

import "github.com/ValentinKolb/shardctl/lib/dbname"

// DBName is a parsed database name: <segment>_<shard>.
type DBName = dbname.Name

// ParseDBName parses s into its segment and shard-index parts.
func ParseDBName(s string) (DBName, error) {
	return dbname.Parse(s)
}
