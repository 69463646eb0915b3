// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"errors"

	"github.com/jeremyhahn/carwatch/pkg/notify"
)

var (
	// Configuration errors

	// ErrBackendPathRequired is returned when backend-path is required but not set.
	ErrBackendPathRequired = errors.New("backend-path is required for this backend")

	// ErrBackendBucketRequired is returned when backend-bucket is required but not set.
	ErrBackendBucketRequired = errors.New("backend-bucket is required")

	// ErrBackendURLRequired is returned when backend-url is required but not set.
	ErrBackendURLRequired = errors.New("backend-url is required")

	// ErrBackendAccountRequired is returned when the azure account is not set.
	ErrBackendAccountRequired = errors.New("backend-account is required")

	// ErrBackendContainerRequired is returned when the azure container is not set.
	ErrBackendContainerRequired = errors.New("backend-container is required")

	// ErrUnsupportedBackend is returned when an unsupported backend is specified.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrUnsupportedOutputFormat is returned when an unsupported output format is specified.
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")

	// ErrUnsupportedNotifier is returned for an unknown notifier setting.
	ErrUnsupportedNotifier = errors.New("unsupported notifier")

	// ErrInvalidLocation is returned when the location is not a known time zone.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidDuration is returned for a non-positive timeout or interval.
	ErrInvalidDuration = errors.New("duration must be positive")

	// ErrFollowRequiresLocal is returned when follow is used with a
	// non-local backend.
	ErrFollowRequiresLocal = errors.New("follow requires the local backend")

	// Secrets. These alias the notify errors so either can be matched.

	// ErrBotTokenRequired is returned when the telegram notifier has no token.
	ErrBotTokenRequired = notify.ErrBotTokenRequired

	// ErrChatIDRequired is returned when the telegram notifier has no chat id.
	ErrChatIDRequired = notify.ErrChatIDRequired

	// ErrWebhookRequired is returned when the slack notifier has no webhook.
	ErrWebhookRequired = notify.ErrWebhookRequired
)
