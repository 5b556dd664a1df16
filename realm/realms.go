// Copyright 2026 The Realm Authors
// SPDX-License-Identifier: Apache-2.0

package realm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boxel-foundation/realm/messaging"
)

// RealmsEventType is the account data event type under which a user's
// realm server URLs are stored on the homeserver.
const RealmsEventType = "com.cardstack.boxel.realms"

type realmsContent struct {
	Realms []string `json:"realms"`
}

// Realms returns the realm URLs recorded in the session user's account
// data. A user with no realms account data gets an empty list, not an
// error.
func Realms(ctx context.Context, session *messaging.DirectSession) ([]string, error) {
	raw, err := session.AccountData(ctx, RealmsEventType)
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("realm: fetching realms account data: %w", err)
	}

	var content realmsContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("realm: parsing realms account data: %w", err)
	}
	return content.Realms, nil
}
