// Package contract loads user-compiled DSP modules from shared libraries and
// wraps them behind a safe, owned adapter.
//
// A loadable module exports one well-known symbol returning a fixed-layout,
// C-compatible record: a version tag plus five function pointers
// (create/process/set_sample_rate/reset/drop); see abi.h. The record is
// constructed once by the module at load time and read-only afterwards. If
// the version tag does not match this runtime's expected constant the record
// is entirely untrusted and none of its function pointers are ever invoked.
//
// Separate well-known symbols expose parameter and processor metadata as
// serialized JSON, each paired with the module's own deallocator for the
// returned buffer. Discovery uses those; steady-state audio never does.
package contract

// Version is the contract revision this runtime understands. A module built
// against any other revision is rejected outright; there is no compatibility
// fallback.
const Version uint32 = 1

// Exported symbol names a loadable module must provide.
const (
	ContractSymbol   = "dsph_contract_v1"
	ParamsSymbol     = "dsph_params_json"
	ProcessorsSymbol = "dsph_processors_json"
	FreeSymbol       = "dsph_free"
)

// MaxChannels bounds the fixed channel-pointer arrays used to cross the
// process boundary without heap indirection.
const MaxChannels = 8
