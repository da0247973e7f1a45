package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"beamctl/internal/core/domain"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/afero"
)

// deviceFileSchema validates the on-disk roster before it is accepted, so a
// hand-edited file with a missing ip or type fails at load instead of at the
// first command.
const deviceFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "name", "ip", "type"],
    "properties": {
      "id": { "type": "string", "minLength": 1 },
      "name": { "type": "string", "minLength": 1 },
      "ip": { "type": "string", "minLength": 1 },
      "type": { "type": "string", "minLength": 1 },
      "username": { "type": "string" },
      "password": { "type": "string" }
    },
    "additionalProperties": false
  }
}`

var ErrDuplicateDevice = errors.New("a device with the same address already exists")
var ErrDeviceNotFound = errors.New("device not found")

// Store persists the device roster as a JSON file.
type Store struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	schema *jsonschema.Schema
}

func NewStore(fs afero.Fs, path string) (*Store, error) {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(deviceFileSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("devices.schema.json", schemaDoc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("devices.schema.json")
	if err != nil {
		return nil, err
	}
	return &Store{
		fs:     fs,
		path:   path,
		schema: schema,
	}, nil
}

// Load reads and validates the roster. A missing file is an empty roster.
func (s *Store) Load() ([]domain.DeviceInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]domain.DeviceInstance, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("device file %s: %w", s.path, err)
	}
	if err := s.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("device file %s: %w", s.path, err)
	}

	var devices []domain.DeviceInstance
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Save writes the whole roster, replacing the file in one rename.
func (s *Store) Save(devices []domain.DeviceInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(devices)
}

func (s *Store) save(devices []domain.DeviceInstance) error {
	if devices == nil {
		devices = []domain.DeviceInstance{}
	}
	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}

// Add inserts a device, assigning an id when none is set. A second device on
// the same address is rejected.
func (s *Store) Add(device domain.DeviceInstance) (domain.DeviceInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.load()
	if err != nil {
		return domain.DeviceInstance{}, err
	}
	if device.ID == "" {
		device.ID = domain.DeviceID(device.Name, device.IP)
	}
	for _, d := range devices {
		if d.IP == device.IP || d.ID == device.ID {
			return domain.DeviceInstance{}, ErrDuplicateDevice
		}
	}
	devices = append(devices, device)
	if err := s.save(devices); err != nil {
		return domain.DeviceInstance{}, err
	}
	return device, nil
}

// Remove deletes a device by id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.load()
	if err != nil {
		return err
	}
	kept := devices[:0]
	for _, d := range devices {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(devices) {
		return ErrDeviceNotFound
	}
	return s.save(kept)
}
