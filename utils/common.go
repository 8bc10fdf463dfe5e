package utils

// Batches smaller than twice this run serially
const MinPointsPerPartition = 256
