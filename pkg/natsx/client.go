package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// NewClient connects to the NATS server named by the NATS_URL environment
// variable, falling back to nats.DefaultURL. Without options the connection is
// named "framesync" and compression is enabled.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	return Connect(os.Getenv("NATS_URL"), opts...)
}

// Connect connects to url, or nats.DefaultURL when url is empty, with the same
// defaults as NewClient.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("framesync"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
