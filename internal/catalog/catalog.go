// Package catalog holds the event record shape shared by every tier and the
// compiled-in event list used as the resolver floor.
package catalog

import (
	"strings"

	"fleetsite/api/internal/resolver"
)

// Record is an event type as served to clients, whichever tier produced it.
type Record struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Href        string  `json:"href,omitempty"`
	Slug        string  `json:"slug,omitempty"`
	Priority    float64 `json:"priority,omitempty"`
}

// Events returns a copy of the static event list in catalog order.
func Events() []Record {
	out := make([]Record, len(staticEvents))
	copy(out, staticEvents)
	return out
}

// Page slices the static list to [offset, offset+limit).
func Page(offset, limit int) []Record {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= len(staticEvents) {
		return []Record{}
	}
	end := offset + limit
	if end > len(staticEvents) {
		end = len(staticEvents)
	}
	out := make([]Record, end-offset)
	copy(out, staticEvents[offset:end])
	return out
}

// EventsFloor is the resolver floor for the events listing.
func EventsFloor(q resolver.Query) []Record {
	return Page(q.Offset, q.Limit)
}

// SearchFloor matches q.Text case-insensitively against name and description.
func SearchFloor(q resolver.Query) []Record {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	matches := make([]Record, 0)
	if needle == "" {
		return matches
	}
	skipped := 0
	for _, record := range staticEvents {
		if !strings.Contains(strings.ToLower(record.Name), needle) &&
			!strings.Contains(strings.ToLower(record.Description), needle) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		matches = append(matches, record)
		if q.Limit > 0 && len(matches) == q.Limit {
			break
		}
	}
	return matches
}

var staticEvents = []Record{
	{Name: "Haunted House Tours", Description: "Experience the thrill of haunted house tours with safe, fun group transportation. Perfect for Halloween and spooky nights out!"},
	{Name: "Thanksgiving Parties", Description: "Gather your friends and family for a memorable Thanksgiving celebration. We handle the driving so you can focus on the fun."},
	{Name: "Christmas Parties", Description: "Celebrate the holidays in style! Our party buses and limos are perfect for Christmas light tours and festive gatherings."},
	{Name: "Ski Resort Tours", Description: "Hit the slopes with ease. Our spacious vehicles make ski trips comfortable and convenient for your whole group."},
	{Name: "New Year’s Eve", Description: "Ring in the new year with a safe ride to and from your party destination. No need to worry about parking or driving!"},
	{Name: "Sporting Events", Description: "Cheer on your favorite team! Avoid traffic and parking hassles with group transportation to any sporting event.", Href: "/events/sporting-events"},
	{Name: "Weddings", Description: "Make your big day seamless and stylish. We offer wedding shuttles, limos, and party buses for guests and bridal parties."},
	{Name: "Prom", Description: "Arrive in style and make prom night unforgettable. Our professional drivers ensure a safe, fun experience."},
	{Name: "Graduation Celebration", Description: "Celebrate your achievement with friends and family. Our vehicles are perfect for graduation parties and ceremonies."},
	{Name: "Concerts / Events", Description: "Enjoy concerts and special events without the stress of driving. Let us get your group there and back safely.", Href: "/events/concerts"},
	{Name: "Bachelor Parties", Description: "The ultimate bachelor party starts with the right ride. Party buses and limos for a night to remember!"},
	{Name: "Bachelorette Parties", Description: "Celebrate with your best friends in a luxury vehicle. Safe, fun, and unforgettable bachelorette parties."},
	{Name: "Brewery Tours", Description: "Tour the best breweries in comfort and style. No need for a designated driver—just enjoy the ride!"},
	{Name: "Red Rocks Concerts", Description: "Make your Red Rocks experience even better with group transportation. Avoid parking and enjoy the show!"},
	{Name: "Girl’s Night Out", Description: "Plan the perfect girls’ night out with a party bus or limo. Safe, stylish, and so much fun."},
	{Name: "Guys Night Out", Description: "Get the crew together for a legendary night out. We’ll handle the driving so you can focus on fun."},
	{Name: "Retirement Celebrations", Description: "Celebrate retirement with friends and family. Our vehicles make group outings easy and enjoyable."},
	{Name: "Blackhawk Casinos", Description: "Try your luck at the casino! Our group transportation is perfect for casino nights and day trips."},
	{Name: "Corporate Parties", Description: "Impress your team and clients with professional group transportation for corporate events and parties."},
	{Name: "Birthday Parties", Description: "Make birthdays extra special with a party bus or limo. Perfect for all ages and group sizes."},
	{Name: "Kid’s Parties", Description: "Safe, fun, and memorable transportation for kids’ parties and special occasions."},
	{Name: "Entertainment Tours", Description: "See the sights and enjoy entertainment tours with your group. Relax and let us do the driving."},
	{Name: "Charter Services", Description: "Flexible charter services for any occasion. Custom routes and schedules for your group’s needs."},
	{Name: "Airport Shuttle", Description: "Start your trip stress-free with airport shuttle service for groups of any size."},
	{Name: "Quinceanera Parties", Description: "Celebrate this milestone in style. Our vehicles are perfect for quinceanera parties and family gatherings."},
	{Name: "Anniversary Celebrations", Description: "Make your anniversary unforgettable with a luxury ride to your special destination."},
	{Name: "Special Dinners Out", Description: "Enjoy a night out with friends or loved ones. We’ll get you to and from your dinner safely and in style."},
}
