// Vacuum - ECS task definition and Lambda version garbage collector
// Collect. Decide. Delete.
package main

func main() {
	Execute()
}
