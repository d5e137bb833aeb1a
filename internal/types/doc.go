/*
Package types defines core data structures shared across authload.

# Overview

The types package provides:
  - Synthetic registration payloads (SyntheticUser)
  - Request bodies for the credentials and profile endpoints
  - The API response envelope and error shape
  - RequestResult, the record of a single HTTP call

# Envelope

Every JSON response of the API is wrapped:

	{
	  "apiVersion": "1.0",
	  "status": "OK",
	  "data": {"accessToken": "...", "refreshToken": "..."}
	}

Failures carry an error object instead of data:

	{
	  "apiVersion": "1.0",
	  "error": {"code": 401, "message": "unauthorized action"}
	}

Envelope.Data stays raw; the chain package extracts fields from it.

# Field Tags

Payload types use JSON tags matching the API, and YAML tags where the
value is printed by the CLI.
*/
package types
