package tracker

import (
	"github.com/invopop/jsonschema"
)

// DocumentSchema returns JSON schema of the project document stored per row
func DocumentSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Project{})
	s.Title = "jobtrack project document"
	return s
}

// CatalogSchema returns JSON schema of the processes catalog file
func CatalogSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Catalog{})
	s.Title = "jobtrack processes catalog"
	return s
}
