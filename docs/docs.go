// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/properties/{id}/commands": {
            "get": {
                "summary": "List command log",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "summary": "Execute calendar command (idempotent)",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.CommandRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "409": {"description": "state conflict / idem in progress", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "422": {"description": "restriction violation / idempotency key reused", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "429": {"description": "rate limited", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "503": {"description": "property busy", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/properties/{id}/calendar": {
            "get": {
                "summary": "Get calendar",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "from", "in": "query", "required": true},
                    {"type": "string", "name": "to", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/properties/{id}/price": {
            "get": {
                "summary": "Resolve one night's price",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "date", "in": "query", "required": true},
                    {"type": "string", "name": "channel", "in": "query"},
                    {"type": "integer", "name": "adults", "in": "query"},
                    {"type": "integer", "name": "children", "in": "query"},
                    {"type": "integer", "name": "nights", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/properties/{id}/quote": {
            "get": {
                "summary": "Quote a stay",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "check_in", "in": "query", "required": true},
                    {"type": "string", "name": "check_out", "in": "query", "required": true},
                    {"type": "string", "name": "channel", "in": "query"},
                    {"type": "integer", "name": "adults", "in": "query"},
                    {"type": "integer", "name": "children", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/properties": {
            "post": {
                "summary": "Create property",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.CreatePropertyRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.CreatedResponse"}}}
            }
        },
        "/admin/properties/{id}/rate-plans": {
            "post": {
                "summary": "Create rate plan",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.CreatedResponse"}}}
            }
        },
        "/admin/properties/{id}/overrides/{date}": {
            "put": {
                "summary": "Set rate override for one night",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "date", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.CreatedResponse"}}}
            }
        },
        "/admin/properties/{id}/restrictions": {
            "post": {
                "summary": "Create booking restriction",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.CreatedResponse"}}}
            }
        },
        "/admin/properties/{id}/channels": {
            "post": {
                "summary": "Connect property to a channel listing",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}
            }
        },
        "/admin/channels/{id}/reconcile": {
            "post": {
                "summary": "Reconcile one channel connection now",
                "parameters": [
                    {"type": "integer", "name": "X-Organization-ID", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "502": {"description": "run failed"}}
            }
        }
    },
    "definitions": {
        "httpgin.CommandRequest": {
            "type": "object",
            "required": ["type", "check_in", "check_out"],
            "properties": {
                "type": {"type": "string", "enum": ["BOOK", "CANCEL", "BLOCK", "UNBLOCK", "UPDATE_PRICE"]},
                "check_in": {"type": "string"},
                "check_out": {"type": "string"},
                "actor": {"type": "string"},
                "source": {"type": "string"},
                "reservation_id": {"type": "string"},
                "channel": {"type": "string"},
                "adults": {"type": "integer"},
                "children": {"type": "integer"},
                "reason": {"type": "string"},
                "maintenance": {"type": "boolean"},
                "price": {"type": "string"}
            }
        },
        "httpgin.CreatePropertyRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string"},
                "currency": {"type": "string"},
                "nightly_price": {"type": "string"}
            }
        },
        "httpgin.CreatedResponse": {
            "type": "object",
            "properties": {"id": {"type": "integer"}}
        },
        "httpgin.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "field": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Calendar Engine API",
	Description:      "Availability calendar, pricing and channel reconciliation for vacation rentals.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
