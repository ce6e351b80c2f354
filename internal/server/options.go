package server

import (
	"errors"

	"example.com/elpisgate/internal/schema"
)

// Options configures server creation.
type Options struct {
	// StorageDir roots the temporary workspace. Defaults to the system
	// temp directory.
	StorageDir string
	// Registry is the schema to decode against. When nil, SchemaPath is
	// loaded instead.
	Registry *schema.Registry
	// SchemaPath points at a messages.json or .dbc schema document.
	SchemaPath string
	// CapturePort selects which UDP port carries decodable datagrams in
	// uploaded captures. Defaults to pcapx.DefaultPort.
	CapturePort int
	// Concurrency bounds parallel buffer decoding. Defaults to NumCPU.
	Concurrency int
}

func (o Options) registry() (*schema.Registry, error) {
	if o.Registry != nil {
		return o.Registry, nil
	}
	if o.SchemaPath != "" {
		return schema.EnsureLoaded(o.SchemaPath)
	}
	return nil, errors.New("server requires a schema registry or schema path")
}
