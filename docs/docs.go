// Package docs registers the OpenAPI document served by gin-swagger.
// Regenerate with: swag init -g internal/http/router.go -o docs
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
        "/auth/signup": {
            "post": {
                "description": "Creates a student account and signs it in. The daily quota starts fresh today.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Create an account",
                "operationId": "signUp",
                "parameters": [
                    {"description": "Signup form", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SignUpRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Username already exists", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Sign in",
                "operationId": "login",
                "parameters": [
                    {"description": "Credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Invalid username or password", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "description": "Clears the session cookie. Tokens held by API clients stay valid until they expire.",
                "tags": ["Auth"],
                "summary": "Sign out",
                "operationId": "logout",
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "description": "Returns the signed-in account with its profile and remaining quota.",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Current account",
                "operationId": "me",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MeResponse"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat": {
            "post": {
                "description": "Consumes one unit of the daily quota and returns the rendered reply.\nOnce the quota is used up the reply carries a fixed notice and limit_reached=true.\nSupports idempotency via the Idempotency-Key header (same key → same reply, no extra quota).",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Ask the counselor assistant a question",
                "operationId": "postChat",
                "parameters": [
                    {"type": "string", "example": "7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab", "description": "Idempotency key for safe retries (UUID recommended)", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Question", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostChatRequest"}}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/services.ChatReply"},
                        "headers": {"Idempotency-Replayed": {"type": "string", "description": "true when the stored reply was replayed"}}
                    },
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Assistant failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/history": {
            "get": {
                "description": "Returns the turns of the current thread, oldest first, rendered for display.\nUsers without a thread get an empty list.",
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Conversation history",
                "operationId": "getChatHistory",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HistoryResponse"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Assistant failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/export": {
            "post": {
                "description": "Renders the supplied (role, content) turns, in order, into a PDF attachment.",
                "consumes": ["application/json"],
                "produces": ["application/pdf"],
                "tags": ["Chat"],
                "summary": "Download selected turns as PDF",
                "operationId": "exportChat",
                "parameters": [
                    {"description": "Selected turns", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ExportRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "No messages selected", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Error generating PDF", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/quota": {
            "get": {
                "description": "remaining is null for the unlimited account.",
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Remaining messages today",
                "operationId": "getQuota",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.QuotaStatus"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/profile": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Profile"],
                "summary": "Read the profile",
                "operationId": "getProfile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Profile"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "description": "Overwrites display name, current grade and bio; blank values clear a field.\nAn invalid grade is rejected and the stored profile stays unchanged.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Profile"],
                "summary": "Update the profile",
                "operationId": "updateProfile",
                "parameters": [
                    {"description": "Profile fields", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UpdateProfileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Profile"}},
                    "400": {"description": "Current grade must be 9, 10, 11, or 12", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tutorial/complete": {
            "post": {
                "tags": ["Profile"],
                "summary": "Mark the onboarding tutorial as seen",
                "operationId": "completeTutorial",
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/documents/{filename}": {
            "get": {
                "description": "Serves a PDF from the documents directory. Only plain *.pdf file names are accepted.",
                "produces": ["application/pdf"],
                "tags": ["Documents"],
                "summary": "Download a school document",
                "operationId": "getDocument",
                "parameters": [
                    {"type": "string", "example": "course_catalog.pdf", "description": "Document file name", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "401": {"description": "Not signed in", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Document not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"description": "Stable, machine-readable code (see errors.go constants)", "type": "string", "example": "not_found"},
                "message": {"description": "Human-readable message (safe to show to users)", "type": "string", "example": "resource not found"},
                "request_id": {"description": "Correlates server logs and client errors", "type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.SignUpRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "jordan27"},
                "password": {"type": "string", "example": "s3cret!"},
                "confirm_password": {"type": "string", "example": "s3cret!"},
                "class_of": {"type": "integer", "example": 2027}
            }
        },
        "handlers.LoginRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "jordan27"},
                "password": {"type": "string", "example": "s3cret!"}
            }
        },
        "handlers.SessionResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/services.Profile"},
                "token": {"type": "string"},
                "expires_at": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.MeResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/services.Profile"},
                "quota": {"$ref": "#/definitions/services.QuotaStatus"}
            }
        },
        "handlers.PostChatRequest": {
            "type": "object",
            "required": ["message"],
            "properties": {
                "message": {"description": "Message is the student's question. It must be non-empty.", "type": "string", "example": "What AP classes should I take junior year?"}
            }
        },
        "handlers.HistoryResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/services.HistoryEntry"}}
            }
        },
        "handlers.ExportRequest": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/render.Turn"}}
            }
        },
        "handlers.UpdateProfileRequest": {
            "type": "object",
            "properties": {
                "display_name": {"type": "string", "example": "Jordan"},
                "current_grade": {"type": "integer", "example": 11},
                "bio": {"type": "string", "example": "Robotics club, interested in engineering"}
            }
        },
        "render.Turn": {
            "type": "object",
            "properties": {
                "role": {"type": "string", "example": "user"},
                "content": {"type": "string"}
            }
        },
        "services.ChatReply": {
            "type": "object",
            "properties": {
                "response": {"type": "string"},
                "limit_reached": {"type": "boolean"},
                "remaining": {"type": "integer"},
                "sources": {"type": "array", "items": {"type": "string"}}
            }
        },
        "services.HistoryEntry": {
            "type": "object",
            "properties": {
                "role": {"type": "string"},
                "content": {"type": "string"}
            }
        },
        "services.QuotaStatus": {
            "type": "object",
            "properties": {
                "remaining": {"description": "Remaining is nil for unlimited users.", "type": "integer"},
                "is_unlimited": {"type": "boolean"}
            }
        },
        "services.Profile": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "class_of": {"type": "integer"},
                "display_name": {"type": "string"},
                "current_grade": {"type": "integer"},
                "bio": {"type": "string"},
                "tutorial_completed": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Counselor Chat API",
	Description:      "Backend for the high-school counselor assistant: accounts, daily-quota chat, PDF export and school documents.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
