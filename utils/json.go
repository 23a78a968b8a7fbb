package utils

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// canonicalAPI sorts map keys so equal params always encode to the same bytes.
var canonicalAPI = sonic.Config{
	SortMapKeys:      true,
	EscapeHTML:       false,
	CompactMarshaler: true,
}.Froze()

func Marshal(data interface{}) ([]byte, error) {
	return sonic.ConfigDefault.Marshal(data)
}

func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigDefault.Unmarshal(data, target)
}

// Decode unmarshals into an arbitrary pointer target.
func Decode(data []byte, target interface{}) error {
	return sonic.ConfigDefault.Unmarshal(data, target)
}

// MarshalCanonical encodes data with sorted map keys.
func MarshalCanonical(data interface{}) ([]byte, error) {
	return canonicalAPI.Marshal(data)
}

func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}

	configBytes, err := sonic.ConfigDefault.Marshal(config)
	if err != nil {
		return err
	}

	return sonic.ConfigDefault.Unmarshal(configBytes, target)
}
