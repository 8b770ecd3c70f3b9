package toolserver

import (
	"encoding/json"
	"os"

	"github.com/shipwrecked/fleetcore/internal/apperr"
)

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.StoreError("marshal "+path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.StoreError("write "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.StoreError("publish "+path, err)
	}
	return nil
}
