package presence

// TopicStatus carries presence_update events on the internal bus whenever the
// set of online users changes. The gateway relays these to connected clients.
const TopicStatus = "presence.status"
