// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmr is a client for the CMR metadata catalog: paginated
// collection and granule search, and the validate-then-commit ingest
// workflow, authenticated with a renewable Echo-Token.
//
// A Client is safe for concurrent use. Token refreshes are serialized:
// callers that discover an expired token at the same time share a
// single re-authentication.
package cmr
