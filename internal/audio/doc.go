// Package audio plays synthesized artifacts. An Adapter decodes a WAV or
// MP3 file into memory and submits it to a Device, either the system output
// through oto or a silent null device.
package audio
