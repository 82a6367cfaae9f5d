// Package ratelimit throttles requests against the remote feed.
//
// The feed serves a consumer web application and publishes no rate
// limits, but a backfill over a long date window can issue hundreds of
// page requests in a tight loop. The sliding-window limiter here spaces
// those requests out so a sync run looks like a browser session rather
// than a crawler; the feed client calls Wait before every request when a
// requests-per-minute budget is configured.
package ratelimit
