package queue

import "fmt"

func NewConnector(config Config) (Connector, error) {
	switch config.Type {
	case "redis":
		if config.Address == "" {
			return nil, fmt.Errorf("redis queue address must be set")
		}
		if config.Name == "" {
			return nil, fmt.Errorf("queue name must be set")
		}
		return NewRedisConnector(config), nil
	default:
		return nil, fmt.Errorf("unsupported queue type: %s", config.Type)
	}
}
