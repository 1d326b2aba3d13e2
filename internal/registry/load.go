// Package registry imports client definitions from YAML or TOML files.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"gopkg.in/yaml.v3"
)

// Format is an import file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnsupportedFormat is returned for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported registry format")

// File is the on-disk layout.
type File struct {
	Clients []ClientEntry `yaml:"clients" toml:"clients"`
}

// ClientEntry describes one client in an import file.
type ClientEntry struct {
	Name      string   `yaml:"name" toml:"name"`
	Quota     int      `yaml:"quota" toml:"quota"`
	Status    string   `yaml:"status" toml:"status"`
	Infobases []string `yaml:"infobases" toml:"infobases"`
}

// FormatFromPath picks a format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadFile reads and validates an import file.
func LoadFile(path string) ([]*models.Client, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	clients, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clients, nil
}

// Parse decodes data and converts it to validated clients. Unknown fields
// are rejected.
func Parse(data []byte, format Format) ([]*models.Client, error) {
	var file File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("parse toml: %s", strict.String())
			}
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return file.toClients()
}

func (f File) toClients() ([]*models.Client, error) {
	clients := make([]*models.Client, 0, len(f.Clients))
	names := make(map[string]int)
	owners := make(map[string]string)

	for i, entry := range f.Clients {
		client := &models.Client{
			Name:      strings.TrimSpace(entry.Name),
			Quota:     entry.Quota,
			Status:    models.ClientStatusActive,
			Infobases: make([]string, 0, len(entry.Infobases)),
		}
		if entry.Status != "" {
			status, err := models.ParseClientStatus(entry.Status)
			if err != nil {
				return nil, fmt.Errorf("clients[%d]: %w", i, err)
			}
			client.Status = status
		}
		if err := client.Validate(); err != nil {
			return nil, fmt.Errorf("clients[%d]: %w", i, err)
		}

		key := strings.ToLower(client.Name)
		if prev, ok := names[key]; ok {
			return nil, fmt.Errorf("clients[%d]: duplicate name %q (also clients[%d])", i, client.Name, prev)
		}
		names[key] = i

		for _, ib := range entry.Infobases {
			ib = strings.TrimSpace(ib)
			if ib == "" {
				return nil, fmt.Errorf("clients[%d]: %w", i, models.ErrInvalidInfobaseName)
			}
			ibKey := strings.ToLower(ib)
			if owner, ok := owners[ibKey]; ok {
				return nil, fmt.Errorf("clients[%d]: infobase %q already listed for %q", i, ib, owner)
			}
			owners[ibKey] = client.Name
			client.Infobases = append(client.Infobases, ib)
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// FromClients builds an import file describing clients.
func FromClients(clients []*models.Client) File {
	file := File{Clients: make([]ClientEntry, 0, len(clients))}
	for _, c := range clients {
		file.Clients = append(file.Clients, ClientEntry{
			Name:      c.Name,
			Quota:     c.Quota,
			Status:    string(c.Status),
			Infobases: append([]string{}, c.Infobases...),
		})
	}
	return file
}

// Marshal encodes f in format.
func Marshal(f File, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatTOML:
		data, err := toml.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
