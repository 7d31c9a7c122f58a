package oto

// NewDestinationForPlayer builds a Destination around a stand-in player.
func NewDestinationForPlayer(p player, ring *Ring, sampleRate, bufferFrames int) *Destination {
	return newDestination(p, ring, sampleRate, bufferFrames)
}
