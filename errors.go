package lokilog

import "fmt"

// ConfigError reports an invalid handler configuration. It is only ever
// returned from construction, never from the delivery path.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "lokilog: invalid configuration: " + e.Reason
}

// DeliveryError reports one failed push. StatusCode is set when Loki
// answered with anything other than 204 No Content, Err when the request
// itself failed before a response was read.
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lokilog: delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("lokilog: unexpected Loki API response status code: %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
