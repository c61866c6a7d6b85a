//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/generate": {
            "get": {
                "description": "Continues the prompt with the served model. The response text starts with the prompt.",
                "produces": ["application/json"],
                "tags": ["inference"],
                "summary": "Generate text",
                "parameters": [
                    {"type": "string", "description": "Prompt to continue", "name": "prompt", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.GenerateResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/system": {
            "get": {
                "description": "Returns the GPU (or CPU fallback) found at startup.",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Compute device",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SystemInfo"}}
                }
            }
        },
        "/models/search": {
            "get": {
                "description": "Lists GGUF model repos on the hub matching q, most downloaded first.",
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Search hub models",
                "parameters": [
                    {"type": "string", "description": "Search text", "name": "q", "in": "query"},
                    {"type": "integer", "description": "Maximum hits (1-100, default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.RemoteModel"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ledger"],
                "summary": "Training runs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.TrainingRun"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/generations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ledger"],
                "summary": "Served generations",
                "parameters": [
                    {"type": "integer", "description": "Maximum records (1-100, default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.GenerationRecord"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.GenerateResponse": {
            "type": "object",
            "properties": {"response": {"type": "string"}}
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}
        },
        "types.SystemInfo": {
            "type": "object",
            "properties": {"kind": {"type": "string"}, "vendor": {"type": "string"}, "count": {"type": "integer"}, "name": {"type": "string"}, "driver": {"type": "string"}, "memory": {"type": "string"}, "accelerated": {"type": "boolean"}}
        },
        "types.RemoteModel": {
            "type": "object",
            "properties": {"id": {"type": "string"}, "author": {"type": "string"}, "downloads": {"type": "integer"}, "likes": {"type": "integer"}, "tags": {"type": "array", "items": {"type": "string"}}, "last_modified": {"type": "string"}}
        },
        "types.TrainingRun": {
            "type": "object",
            "properties": {"id": {"type": "string"}, "model": {"type": "string"}, "dataset": {"type": "string"}, "examples": {"type": "integer"}, "status": {"type": "string"}, "error": {"type": "string"}, "started_at": {"type": "string"}, "finished_at": {"type": "string"}}
        },
        "types.GenerationRecord": {
            "type": "object",
            "properties": {"id": {"type": "string"}, "prompt": {"type": "string"}, "response": {"type": "string"}, "duration_ms": {"type": "integer"}, "created_at": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "aiserver API",
	Description:      "Text generation with a fine-tuned code model.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the UI and doc.json under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
