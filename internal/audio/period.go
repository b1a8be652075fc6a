package audio

// capturePeriodMS is the size of each captured frame in milliseconds. One
// period per amplitude tick keeps metering at roughly 10 Hz.
const capturePeriodMS = 100
