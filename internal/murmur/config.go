package murmur

import (
	"encoding/json"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/filestore"
)

// TriggerConfig is the on-disk shape of <vault>/org/murmur-triggers.json:
// an ordered trigger list per team, evaluated in the order given.
type TriggerConfig struct {
	Teams map[string][]Trigger `json:"teams"`
}

// LoadTriggerConfig reads path, returning an empty config (not an error)
// if the file doesn't exist — a vault with no murmur-triggers.json simply
// runs with no configured review cycles, same as the daemon's treatment
// of a missing notification-rules file.
func LoadTriggerConfig(path string) (TriggerConfig, error) {
	data, err := filestore.ReadFileOrEmpty(path)
	if err != nil {
		return TriggerConfig{}, aoferrors.New(aoferrors.KindFatalIO, "murmur.LoadTriggerConfig", "read "+path, err)
	}
	if data == nil {
		return TriggerConfig{}, nil
	}
	var cfg TriggerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return TriggerConfig{}, aoferrors.New(aoferrors.KindValidation, "murmur.LoadTriggerConfig", "parse "+path, err)
	}
	return cfg, nil
}
