package counter

import (
	"context"
	"fmt"
	"strings"
)

// Unread maintains per-room and per-site unread message counters plus a
// denormalized snapshot of the rooms recently active for a site.
//
// Invariant: total_unread(site) equals the sum of latest_count(site, room)
// over all rooms of the site. IncreaseLatest and ResetLatest always mutate
// the pair together, never independently.
type Unread struct {
	client *Client
}

func NewUnread(client *Client) *Unread {
	return &Unread{client: client}
}

func latestKey(site, room string) string {
	return fmt.Sprintf("site:%s:room:%s:latest_count", site, room)
}

func totalKey(site, room string) string {
	return fmt.Sprintf("site:%s:room:%s:total_count", site, room)
}

func unreadKey(site string) string {
	return fmt.Sprintf("site:%s:total_unread", site)
}

func roomsKey(site string) string {
	return fmt.Sprintf("site:%s:rooms", site)
}

// IncreaseLatest bumps the room's latest and total message counts and the
// site's total unread count by delta.
func (u *Unread) IncreaseLatest(ctx context.Context, site, room string, delta int64) error {
	if _, err := u.client.Incr(ctx, latestKey(site, room), delta); err != nil {
		return err
	}
	if _, err := u.client.Incr(ctx, totalKey(site, room), delta); err != nil {
		return err
	}
	_, err := u.client.Incr(ctx, unreadKey(site), delta)
	return err
}

// ResetLatest zeroes the room's latest count and subtracts the prior value
// from the site's total unread count. The two steps are not atomic against
// concurrent IncreaseLatest calls on other rooms of the same site.
func (u *Unread) ResetLatest(ctx context.Context, site, room string) error {
	latest, err := u.client.GetInt(ctx, latestKey(site, room))
	if err != nil {
		return err
	}
	if _, err := u.client.Incr(ctx, unreadKey(site), -latest); err != nil {
		return err
	}
	return u.client.Set(ctx, latestKey(site, room), 0)
}

// RoomCounts returns the room's latest and total message counts.
func (u *Unread) RoomCounts(ctx context.Context, site, room string) (latest, total int64, err error) {
	latest, err = u.client.GetInt(ctx, latestKey(site, room))
	if err != nil {
		return 0, 0, err
	}
	total, err = u.client.GetInt(ctx, totalKey(site, room))
	if err != nil {
		return 0, 0, err
	}
	return latest, total, nil
}

func (u *Unread) TotalUnread(ctx context.Context, site string) (int64, error) {
	return u.client.GetInt(ctx, unreadKey(site))
}

// SetSiteRooms persists the site's active room set as a comma-joined string.
// Best effort; the authoritative room list lives in the database.
func (u *Unread) SetSiteRooms(ctx context.Context, site string, rooms []string) error {
	return u.client.Set(ctx, roomsKey(site), strings.Join(rooms, ","))
}

func (u *Unread) SiteRooms(ctx context.Context, site string) ([]string, error) {
	val, found, err := u.client.Get(ctx, roomsKey(site))
	if err != nil {
		return nil, err
	}
	if !found || val == "" {
		return nil, nil
	}
	return strings.Split(val, ","), nil
}
