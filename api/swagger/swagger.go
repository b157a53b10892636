package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Tutor Booking API",
        "description": "Tutoring session scheduling and lifecycle engine",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Token issuance"},
        {"name": "Availability", "description": "Free-slot queries"},
        {"name": "Reschedules", "description": "Booking reschedule transaction and history"},
        {"name": "Admin", "description": "Lifecycle sweep and exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Query teacher availability",
                "parameters": [
                    {"name": "start_date", "in": "query", "required": true, "type": "string"},
                    {"name": "end_date", "in": "query", "required": true, "type": "string"},
                    {"name": "teacher_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid window"}
                }
            }
        },
        "/reschedules": {
            "get": {
                "tags": ["Reschedules"],
                "summary": "List reschedule history",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Reschedules"],
                "summary": "Reschedule a booking",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RescheduleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not eligible, slot taken, credits exhausted, or concurrent modification"},
                    "412": {"description": "No active package"}
                }
            }
        },
        "/admin/reschedules/{id}/cancel": {
            "post": {
                "tags": ["Reschedules"],
                "summary": "Cancel a reschedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Record not found"},
                    "409": {"description": "Record not cancellable"}
                }
            }
        },
        "/admin/sweep": {
            "post": {
                "tags": ["Admin"],
                "summary": "Run a lifecycle sweep",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SweepReport"}}
                }
            }
        },
        "/admin/exports": {
            "post": {
                "tags": ["Admin"],
                "summary": "Request a reschedule-history export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/exports/{id}": {
            "get": {
                "tags": ["Admin"],
                "summary": "Check an export job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RescheduleRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "old_class_id": {"type": "string"},
                "new_date": {"type": "string"},
                "new_start_time": {"type": "string"},
                "new_end_time": {"type": "string"},
                "reason": {"type": "string"},
                "new_teacher_id": {"type": "string"}
            },
            "required": ["student_id", "old_class_id", "new_date", "new_start_time", "new_end_time", "reason"]
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "student_id": {"type": "string"},
                "status": {"type": "string"}
            },
            "required": ["format"]
        },
        "SweepReport": {
            "type": "object",
            "properties": {
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "classes_examined": {"type": "integer"},
                "classes_completed": {"type": "integer"},
                "bookings_examined": {"type": "integer"},
                "bookings_attended": {"type": "integer"},
                "bookings_deferred": {"type": "integer"},
                "unit_failures": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
