package handler

import (
	"encoding/json"

	"github.com/brianly1003/notepadtt/internal/rpc/message"
)

// OpenRPCSpec represents the OpenRPC specification.
type OpenRPCSpec struct {
	OpenRPC    string            `json:"openrpc"`
	Info       OpenRPCInfo       `json:"info"`
	Servers    []OpenRPCServer   `json:"servers"`
	Methods    []OpenRPCMethod   `json:"methods"`
	Components OpenRPCComponents `json:"components"`
}

// OpenRPCInfo contains API metadata.
type OpenRPCInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// OpenRPCServer represents a server endpoint.
type OpenRPCServer struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// OpenRPCMethod represents a JSON-RPC method.
type OpenRPCMethod struct {
	Name        string            `json:"name"`
	Summary     string            `json:"summary"`
	Description string            `json:"description,omitempty"`
	Params      []OpenRPCParam    `json:"params"`
	Result      *OpenRPCResult    `json:"result,omitempty"`
	Errors      []OpenRPCErrorRef `json:"errors,omitempty"`
}

// OpenRPCParam represents a method parameter.
type OpenRPCParam struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Required    bool                   `json:"required"`
	Schema      map[string]interface{} `json:"schema"`
}

// OpenRPCResult represents a method result.
type OpenRPCResult struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
}

// OpenRPCErrorRef references an error definition.
type OpenRPCErrorRef struct {
	Ref string `json:"$ref,omitempty"`
}

// OpenRPCComponents contains reusable components.
type OpenRPCComponents struct {
	Schemas map[string]interface{} `json:"schemas,omitempty"`
	Errors  map[string]interface{} `json:"errors,omitempty"`
}

// MethodMeta contains metadata for a registered method.
type MethodMeta struct {
	Summary     string
	Description string
	Params      []OpenRPCParam
	Result      *OpenRPCResult
	Errors      []string // Error names to reference
}

// GenerateOpenRPC generates an OpenRPC spec from the registry.
func (r *Registry) GenerateOpenRPC(info OpenRPCInfo, serverURL string) *OpenRPCSpec {
	spec := &OpenRPCSpec{
		OpenRPC: "1.2.6",
		Info:    info,
		Servers: []OpenRPCServer{
			{Name: "Default", URL: serverURL},
		},
		Methods: make([]OpenRPCMethod, 0),
		Components: OpenRPCComponents{
			Schemas: defaultSchemas(),
			Errors:  defaultErrors(),
		},
	}

	for _, name := range r.Methods() {
		meta := r.GetMeta(name)
		method := OpenRPCMethod{
			Name:    name,
			Summary: meta.Summary,
			Params:  meta.Params,
			Result:  meta.Result,
		}
		if meta.Description != "" {
			method.Description = meta.Description
		}
		for _, errName := range meta.Errors {
			method.Errors = append(method.Errors, OpenRPCErrorRef{
				Ref: "#/components/errors/" + errName,
			})
		}
		spec.Methods = append(spec.Methods, method)
	}

	return spec
}

// ToJSON returns the OpenRPC spec as JSON.
func (spec *OpenRPCSpec) ToJSON() ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}

type schema = map[string]interface{}

// defaultSchemas returns the shared tab schemas.
func defaultSchemas() map[string]interface{} {
	return map[string]interface{}{
		"TabInfo": schema{
			"type":     "object",
			"required": []string{"filename", "fileId", "isProtected"},
			"properties": schema{
				"filename":    schema{"type": "string"},
				"fileId":      schema{"type": "string"},
				"isProtected": schema{"type": "boolean"},
			},
		},
		"Info": schema{
			"type":     "object",
			"required": []string{"activeFileId", "tabInfos", "changeToken"},
			"properties": schema{
				"activeFileId": schema{"type": []string{"string", "null"}},
				"tabInfos":     schema{"type": "array", "items": schema{"$ref": "#/components/schemas/TabInfo"}},
				"changeToken":  schema{"type": "string"},
			},
		},
		"TabContent": schema{
			"type":     "object",
			"required": []string{"fileId", "text"},
			"properties": schema{
				"fileId": schema{"type": "string"},
				"text":   schema{"type": "string"},
			},
		},
	}
}

// defaultErrors returns the tab synchronization error definitions.
func defaultErrors() map[string]interface{} {
	return map[string]interface{}{
		"Conflict": schema{
			"code":    message.Conflict,
			"message": "The change token is stale; fetch the latest snapshot and retry",
		},
		"NotFoundIdentifier": schema{
			"code":    message.NotFoundIdentifier,
			"message": "The file id is unknown to this server process",
		},
		"InvalidFilename": schema{
			"code":    message.InvalidFilename,
			"message": "A filename in the snapshot is not allowed",
		},
		"ContentTooLarge": schema{
			"code":    message.ContentTooLarge,
			"message": "The text exceeds the configured size limit",
		},
		"PermissionDenied": schema{
			"code":    message.PermissionDenied,
			"message": "The data directory is not writable",
		},
	}
}

// SchemaRef builds a reference to one of the shared schemas.
func SchemaRef(name string) map[string]interface{} {
	return schema{"$ref": "#/components/schemas/" + name}
}
