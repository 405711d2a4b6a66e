package call

import (
	"encoding/json"

	"github.com/opd-ai/voipcore/crypto"
)

// ProxyCapability remembers whether the last-seen proxy was observed to
// support UDP and/or TCP relaying, per §6's persistent-state contract.
type ProxyCapability struct {
	Server string `json:"server"`
	UDP    bool   `json:"udp"`
	TCP    bool   `json:"tcp"`
}

// PersistentState is the JSON object described in §6:
// {ver:1, proxy:{server,udp,tcp}?}.
type PersistentState struct {
	Ver   int              `json:"ver"`
	Proxy *ProxyCapability `json:"proxy,omitempty"`
}

// GetPersistentState serializes and seals the current persistent state
// under sealKey so it is safe to write to disk between calls.
func (c *Controller) GetPersistentState(sealKey [32]byte) ([]byte, error) {
	plaintext, err := json.Marshal(c.persistentState)
	if err != nil {
		return nil, err
	}
	return crypto.SealPersistentState(sealKey, plaintext)
}

// SetPersistentState opens a sealed blob produced by GetPersistentState and
// loads it as the controller's persistent state.
func (c *Controller) SetPersistentState(sealKey [32]byte, sealed []byte) error {
	plaintext, err := crypto.OpenPersistentState(sealKey, sealed)
	if err != nil {
		return err
	}
	var ps PersistentState
	if err := json.Unmarshal(plaintext, &ps); err != nil {
		return err
	}
	c.persistentState = ps
	return nil
}
