package collector

import "encoding/json"

// request is the auxiliary RPC envelope spec.md §6 reserves for
// wrapper-mode reporters: ResolveProgram and UpdateEnvironment. Plain
// event records (§6's reporter→collector protocol) never carry a
// "method" field, which is how a connection's read loop tells the two
// apart (event.IsEventRecord).
type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     interface{}     `json:"id,omitempty"`
}

type response struct {
	ID     interface{} `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type resolveProgramParams struct {
	Name string `json:"name"`
}

type updateEnvironmentParams struct {
	Env map[string]string `json:"env"`
}
