package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	ABI      abi.ABI
	Bytecode []byte
}

// LoadArtifact reads a compiler artifact JSON file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return ParseArtifact(data)
}

// ParseArtifact accepts both {"abi":[...],"bytecode":"0x.."} and the
// {"abi":[...],"bytecode":{"object":"0x.."}} layout.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, fmt.Errorf("parse artifact: missing abi")
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse artifact abi: %w", err)
	}

	var code string
	if err := json.Unmarshal(raw.Bytecode, &code); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw.Bytecode, &obj); err != nil {
			return nil, fmt.Errorf("parse artifact bytecode: %w", err)
		}
		code = obj.Object
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("decode artifact bytecode: %w", err)
	}
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("parse artifact: empty bytecode")
	}

	return &Artifact{ABI: parsed, Bytecode: bytecode}, nil
}
