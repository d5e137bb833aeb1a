/*
Package executor sends the API calls that scenarios are built from.

# Overview

A Client is created once per run from Options and shared by every
virtual user. It owns one pooled http.Transport sized for the number of
concurrent users. Session derives a per-user copy with its own cookie
jar, which the admin docs flow needs to carry the session cookie from
the login POST to index.html.

# Requests

Do is the single entry point. A Call names its step, method and path
(relative to the API prefix) and carries either a JSON body or a form
body. A non-empty Token is sent as a bearer Authorization header.

The endpoint helpers (Signup, Login, Refresh, GetProfile, ChangeEmails,
DocsLoginPage, DocsLogin, DocsIndex) wrap Do for the API routes.

# Errors

Network failures do not surface as Go errors. They are stored in
RequestResult.Error with Status 0 so that checks fail and the run goes
on. Do only returns an error when the request itself cannot be built.

# Observation

Every completed call is logged at debug level and handed to the
Observer, which the runtime uses to feed stats, Prometheus metrics and
the results database.

# Example

	client, err := executor.NewClient(executor.Options{
		BaseURL:  "http://localhost:8082",
		MaxConns: 10,
	})
	if err != nil {
		return err
	}

	ctx = executor.WithVU(ctx, 1)
	result, err := client.Login(ctx, "login", "alice", "password")
	if err != nil {
		return err
	}
	fmt.Println(result.Status, result.Duration)

# Thread Safety

Client is safe for concurrent use. Sessions share the transport but not
cookies.
*/
package executor
