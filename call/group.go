package call

// RequestGroupUpgrade piggybacks a request-to-upgrade flag on the next
// outgoing packet, asking the peer to stand up a groupcall.Session and hand
// back a session key via SendGroupCallKey, per §4.4/§9.
func (c *Controller) RequestGroupUpgrade() {
	c.extras.Set(ExtraRequestGroup, []byte{1})
}

// SendGroupCallKey piggybacks the group session key (typically a
// groupcall.Session.ID marshaled to bytes) so the peer can join the relay.
func (c *Controller) SendGroupCallKey(key []byte) {
	c.extras.Set(ExtraGroupCallKey, key)
	if c.callbacks.GroupKeySent != nil {
		c.callbacks.GroupKeySent()
	}
}
