package redisx

import "fmt"

const ns = "calendar:v1"

func KeyCalendar(orgID, propertyID int64, from, to string) string {
	return fmt.Sprintf("%s:org:%d:property:%d:calendar:%s:%s", ns, orgID, propertyID, from, to)
}

func KeyPrice(orgID, propertyID int64, date, channel string, adults, children, nights int) string {
	return fmt.Sprintf("%s:org:%d:property:%d:price:%s:%s:%d:%d:%d",
		ns, orgID, propertyID, date, channel, adults, children, nights)
}

// KeyPropertyIndex names the set of cache keys derived from one property's
// calendar and rules.
func KeyPropertyIndex(orgID, propertyID int64) string {
	return fmt.Sprintf("%s:org:%d:property:%d:keys", ns, orgID, propertyID)
}

func KeyPropertyLock(propertyID int64) string {
	return fmt.Sprintf("%s:lock:property:%d", ns, propertyID)
}

func KeyIdemCommand(orgID, propertyID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:org:%d:property:%d:%s", ns, orgID, propertyID, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyTopicStream(topic string) string {
	return ns + ":stream:" + topic
}

func KeyQuote(orgID, propertyID int64, checkIn, checkOut, channel string, adults, children int) string {
	return fmt.Sprintf("%s:org:%d:property:%d:quote:%s:%s:%s:%d:%d",
		ns, orgID, propertyID, checkIn, checkOut, channel, adults, children)
}
