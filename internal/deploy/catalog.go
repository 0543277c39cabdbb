package deploy

// DatabaseImage pins how a managed database type runs: which image to
// pull, where its data lives, and which port the proxy routes to.
type DatabaseImage struct {
	Ref      string
	DataPath string
	Port     int
}

// Catalog is the curated image set for managed databases. Tags are pinned
// to major versions the platform has verified; users cannot override them.
var Catalog = map[string]DatabaseImage{
	"POSTGRES":      {Ref: "postgres:16-alpine", DataPath: "/var/lib/postgresql/data", Port: 5432},
	"REDIS":         {Ref: "redis:7-alpine", DataPath: "/data", Port: 6379},
	"MYSQL":         {Ref: "mysql:8", DataPath: "/var/lib/mysql", Port: 3306},
	"MONGODB":       {Ref: "mongo:7", DataPath: "/data/db", Port: 27017},
	"MARIADB":       {Ref: "mariadb:11", DataPath: "/var/lib/mysql", Port: 3306},
	"CASSANDRA":     {Ref: "cassandra:5", DataPath: "/var/lib/cassandra", Port: 9042},
	"ELASTICSEARCH": {Ref: "elasticsearch:8.15.0", DataPath: "/usr/share/elasticsearch/data", Port: 9200},
	"COUCHDB":       {Ref: "couchdb:3", DataPath: "/opt/couchdb/data", Port: 5984},
	"RABBITMQ":      {Ref: "rabbitmq:3-management", DataPath: "/var/lib/rabbitmq", Port: 5672},
	"NEO4J":         {Ref: "neo4j:5", DataPath: "/data", Port: 7474},
	"ZOOKEEPER":     {Ref: "zookeeper:3.9", DataPath: "/data", Port: 2181},
	"CLICKHOUSE":    {Ref: "clickhouse/clickhouse-server:24", DataPath: "/var/lib/clickhouse", Port: 8123},
	"INFLUXDB":      {Ref: "influxdb:2", DataPath: "/var/lib/influxdb2", Port: 8086},
}

// DefaultPort picks the routed port for a job: explicit port first, then
// the database catalog, then the type's convention (80 static, 3000 app).
func DefaultPort(job Job) int {
	if job.Port > 0 {
		return job.Port
	}
	if img, ok := Catalog[job.Type]; ok {
		return img.Port
	}
	if job.Type == TypeStatic {
		return 80
	}
	return 3000
}
