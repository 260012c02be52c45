package config

// Network server port constants
// These ports are carefully selected to avoid conflicts with popular databases,
// data warehouses, and development tools commonly used in production environments.
const (
	// Coordination Server Port - embedded work queue HTTP endpoint
	// Selected to avoid ZooKeeper (2181), etcd (2379), and common dev ports
	COORDINATION_SERVER_PORT = 2852
)

// Network server address constants
const (
	// Default bind address for all servers
	DEFAULT_SERVER_ADDRESS = "0.0.0.0"

	// Localhost address for development
	LOCALHOST_ADDRESS = "127.0.0.1"
)

// Work queue constants
const (
	// Default queue name remote replication workers consume from
	DEFAULT_WORK_QUEUE = "replication-work"
)

// Configuration file constants
const (
	// Default configuration file path
	DEFAULT_CONFIG_FILE = "slate.yml"
)

// Port validation constants
const (
	MIN_PORT = 1
	MAX_PORT = 65535
)

// IsValidPort checks if a port number is within valid range
func IsValidPort(port int) bool {
	return port >= MIN_PORT && port <= MAX_PORT
}
