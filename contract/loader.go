//go:build cgo && (darwin || linux)

package contract

import (
	"fmt"
	"unsafe"
)

/*
#cgo linux LDFLAGS: -ldl

#include <stdlib.h>
#include <dlfcn.h>
#include "abi.h"
*/
import "C"

// library is an open shared-library handle. It stays mapped in the process
// for as long as any function pointer resolved from it may still be called.
type library struct {
	handle unsafe.Pointer
	path   string
}

func openLibrary(path string) (*library, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	// RTLD_NOW surfaces unresolved symbols at load time instead of mid-block.
	handle := C.dlopen(cPath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, fmt.Errorf("dlopen %s: %s", path, dlError())
	}
	return &library{handle: handle, path: path}, nil
}

// symbol resolves name or returns a MissingSymbolError.
func (l *library) symbol(name string) (unsafe.Pointer, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	C.dlerror() // clear stale state
	sym := C.dlsym(l.handle, cName)
	if sym == nil {
		return nil, &MissingSymbolError{Path: l.path, Symbol: name, Detail: dlError()}
	}
	return sym, nil
}

func (l *library) close() error {
	if l.handle == nil {
		return nil
	}
	if C.dlclose(l.handle) != 0 {
		return fmt.Errorf("dlclose %s: %s", l.path, dlError())
	}
	l.handle = nil
	return nil
}

func dlError() string {
	msg := C.dlerror()
	if msg == nil {
		return "unknown dynamic linker error"
	}
	return C.GoString(msg)
}

// Load opens the shared library at path, resolves the contract symbol,
// validates the version tag, and instantiates the processor. On success the
// library remains mapped for the adapter's lifetime; every failure path
// closes it again.
func Load(path string) (*Adapter, error) {
	lib, err := openLibrary(path)
	if err != nil {
		return nil, err
	}

	sym, err := lib.symbol(ContractSymbol)
	if err != nil {
		lib.close()
		return nil, err
	}

	rec := C.dsph_call_contract(sym)
	if rec == nil {
		lib.close()
		return nil, fmt.Errorf("module %s: %s returned a nil contract record", path, ContractSymbol)
	}

	// Past this point the record is only trusted once the version matches;
	// a mismatched record has none of its function pointers invoked.
	if err := validateVersion(path, uint32(rec.version)); err != nil {
		lib.close()
		return nil, err
	}

	inst := C.dsph_call_create(rec)
	if inst == nil {
		lib.close()
		return nil, fmt.Errorf("module %s: create() returned nil instance", path)
	}

	return &Adapter{rec: rec, inst: inst, lib: lib}, nil
}

// Metadata holds the serialized listings a module exports for discovery.
type Metadata struct {
	ParamsJSON     string
	ProcessorsJSON string
}

// ReadMetadata opens the library at path just long enough to call the
// metadata symbols and copy their output. Each returned buffer is released
// through the module's own deallocator before the library is closed.
func ReadMetadata(path string) (Metadata, error) {
	var meta Metadata

	lib, err := openLibrary(path)
	if err != nil {
		return meta, err
	}
	defer lib.close()

	freeSym, err := lib.symbol(FreeSymbol)
	if err != nil {
		return meta, err
	}

	read := func(symName string) (string, error) {
		sym, err := lib.symbol(symName)
		if err != nil {
			return "", err
		}
		buf := C.dsph_call_json(sym)
		if buf == nil {
			return "", fmt.Errorf("module %s: %s returned nil", path, symName)
		}
		s := C.GoString(buf)
		C.dsph_call_free(freeSym, buf)
		return s, nil
	}

	if meta.ParamsJSON, err = read(ParamsSymbol); err != nil {
		return meta, err
	}
	if meta.ProcessorsJSON, err = read(ProcessorsSymbol); err != nil {
		return meta, err
	}
	return meta, nil
}
