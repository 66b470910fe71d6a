/*
Package stdio binds the event bridge to a byte stream such as a child process's stdin/stdout.
Each frame is a little-endian uint32 length followed by that many bytes of envelope text.
*/
package stdio
