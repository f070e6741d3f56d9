// Provides platform-appropriate paths for boxd.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS. The name "boxd" is used as the subdirectory under each base path.
package paths
